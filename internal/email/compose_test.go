package email

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"finagent/internal/alerts"
	"finagent/internal/config"
)

func TestComposeMessage_Structure(t *testing.T) {
	msg, err := ComposeMessage(ComposeOptions{
		From:    "Alerts <alerts@example.com>",
		To:      []string{"user@example.com"},
		Subject: "Price alert: 600519.SH < 1500.00",
		Body:    "**Condition:** 600519.SH < 1500.00",
	})
	if err != nil {
		t.Fatalf("ComposeMessage: %v", err)
	}

	s := string(msg)
	for _, want := range []string{
		"alerts@example.com",
		"user@example.com",
		"Subject: Price alert: 600519.SH < 1500.00",
		"multipart/alternative",
		"text/plain",
		"text/html",
		"Message-Id:",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q:\n%s", want, s)
		}
	}
}

func TestComposeMessage_InvalidAddress(t *testing.T) {
	_, err := ComposeMessage(ComposeOptions{
		From:    "not an address",
		To:      []string{"user@example.com"},
		Subject: "x",
		Body:    "y",
	})
	if err == nil {
		t.Error("expected error for invalid from address")
	}
}

func TestMarkdownToPlain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**bold** text", "bold text"},
		{"# Heading\nbody", "Heading\nbody"},
		{"[link](https://example.com)", "link (https://example.com)"},
		{"`code`", "code"},
		{"- item one\n- item two", "- item one\n- item two"},
	}
	for _, tt := range tests {
		if got := markdownToPlain(tt.in); got != tt.want {
			t.Errorf("markdownToPlain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Name <a@b.com>", "a@b.com"},
		{"a@b.com", "a@b.com"},
		{"<a@b.com>", "a@b.com"},
	}
	for _, tt := range tests {
		if got := extractAddress(tt.in); got != tt.want {
			t.Errorf("extractAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCollectRecipients_Dedup(t *testing.T) {
	got := collectRecipients([]string{"A <a@b.com>", "a@b.com", "c@d.com"})
	if len(got) != 2 || got[0] != "a@b.com" || got[1] != "c@d.com" {
		t.Errorf("collectRecipients = %v", got)
	}
}

func TestNotify_NoRecipient(t *testing.T) {
	n := NewNotifier(config.SMTPConfig{From: "alerts@example.com"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := n.Notify(context.Background(), alerts.Task{Symbol: "600519.SH", Comparator: alerts.CompLT, Threshold: 1500}, 1490)
	if err == nil || !strings.Contains(err.Error(), "no recipient") {
		t.Errorf("err = %v, want no-recipient error", err)
	}
}

func TestAlertBody(t *testing.T) {
	task := alerts.Task{ID: "abc", Symbol: "600519.SH", Comparator: alerts.CompLT, Threshold: 1500}
	body := alertBody(task, 1490.5)
	if !strings.Contains(body, "600519.SH < 1500.00") || !strings.Contains(body, "1490.50") {
		t.Errorf("alert body missing fields:\n%s", body)
	}
}
