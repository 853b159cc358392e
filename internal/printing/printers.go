package printing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

type Printer interface {
	Print(ctx context.Context, path, printerName string) error
}

type PrinterFunc func(ctx context.Context, path, printerName string) error

func (f PrinterFunc) Print(ctx context.Context, path, printerName string) error {
	return f(ctx, path, printerName)
}

type PrinterConfig struct {
	Kind       string
	Command    string
	WebhookURL string
}

// NewPrinter resolves the configured print backend. The log and noop kinds
// report success without printing and must be chosen explicitly.
func NewPrinter(cfg PrinterConfig) (Printer, error) {
	switch cfg.Kind {
	case "", "command", "lp":
		command := cfg.Command
		if command == "" {
			command = "lp"
		}
		return commandPrinter{command: command}, nil
	case "log":
		return logPrinter{}, nil
	case "noop":
		return noopPrinter{}, nil
	case "fail":
		return failPrinter{}, nil
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("%w: webhook printer needs a URL", ErrUnknownPrinter)
		}
		return webhookPrinter{url: cfg.WebhookURL}, nil
	default:
		if strings.HasPrefix(cfg.Kind, "http://") || strings.HasPrefix(cfg.Kind, "https://") {
			return webhookPrinter{url: cfg.Kind}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrinter, cfg.Kind)
	}
}

type logPrinter struct{}

func (logPrinter) Print(ctx context.Context, path, printerName string) error {
	log.Printf("print file=%s printer=%s", path, printerName)
	return nil
}

type noopPrinter struct{}

func (noopPrinter) Print(ctx context.Context, path, printerName string) error {
	return nil
}

type failPrinter struct{}

func (failPrinter) Print(ctx context.Context, path, printerName string) error {
	return errors.New("printer failure")
}

type commandPrinter struct {
	command string
}

func (p commandPrinter) Print(ctx context.Context, path, printerName string) error {
	args := []string{}
	if printerName != "" {
		args = append(args, "-d", printerName)
	}
	args = append(args, path)
	output, err := exec.CommandContext(ctx, p.command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", p.command, err, strings.TrimSpace(string(output)))
	}
	return nil
}

type webhookPrinter struct {
	url string
}

func (p webhookPrinter) Print(ctx context.Context, path, printerName string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{
		"printer":  printerName,
		"filename": filepath.Base(path),
		"content":  base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("print service rejected request: status=%d", resp.StatusCode)
	}
	return nil
}
