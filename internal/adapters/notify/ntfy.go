// Package notify pushes run outcomes to an ntfy topic.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"stormscout/internal/core/domain/ports"
)

var _ ports.Notifier = (*NtfyNotifier)(nil)

type NtfyNotifier struct {
	serverURL string
	topic     string
	icon      string
	http      *resty.Client
	log       *zap.Logger
}

func NewNtfyNotifier(serverURL, topic, icon string, log *zap.Logger) *NtfyNotifier {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &NtfyNotifier{
		serverURL: strings.TrimRight(serverURL, "/"),
		topic:     topic,
		icon:      icon,
		http:      client,
		log:       log,
	}
}

func (n *NtfyNotifier) Success(ctx context.Context, title, message string) error {
	return n.publish(ctx, title, message, "white_check_mark")
}

func (n *NtfyNotifier) Error(ctx context.Context, title, message string) error {
	return n.publish(ctx, title, message, "rotating_light")
}

func (n *NtfyNotifier) publish(ctx context.Context, title, message, tags string) error {
	if n.serverURL == "" {
		n.log.Debug("ntfy server not configured, skipping notification")
		return nil
	}

	req := n.http.R().
		SetContext(ctx).
		SetHeader("X-Title", title).
		SetHeader("X-Tags", tags).
		SetBody(message)
	if n.icon != "" {
		req.SetHeader("X-Icon", n.icon)
	}

	res, err := req.Post(fmt.Sprintf("%s/%s", n.serverURL, n.topic))
	if err != nil {
		return fmt.Errorf("publish to ntfy: %w", err)
	}
	if res.StatusCode() >= 300 {
		return fmt.Errorf("ntfy returned status %d", res.StatusCode())
	}
	return nil
}
