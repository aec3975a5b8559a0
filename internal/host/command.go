package host

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/eternisai/enchanted-push/internal/push"
)

// Notifier displays and dismisses system notifications.
type Notifier interface {
	Show(ctx context.Context, d push.Display) error
	Close(ctx context.Context, tag string) error
}

// Notifiers fans a notification out to several notifiers. Show succeeds
// when at least one of them displayed it.
type Notifiers []Notifier

func (ns Notifiers) Show(ctx context.Context, d push.Display) error {
	var errs []error
	for _, n := range ns {
		if err := n.Show(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(ns) {
		return errors.Join(append(errs, errors.New("no notifier displayed the notification"))...)
	}
	return nil
}

func (ns Notifiers) Close(ctx context.Context, tag string) error {
	var errs []error
	for _, n := range ns {
		if err := n.Close(ctx, tag); err != nil && !errors.Is(err, ErrNoPages) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CommandNotifier shows notifications through a desktop notification command
// in the style of notify-send: Command, then IconFlag and the icon when both
// are set, then the title and body.
type CommandNotifier struct {
	Command  []string
	IconFlag string
}

func (c CommandNotifier) Show(ctx context.Context, d push.Display) error {
	if len(c.Command) == 0 {
		return errors.New("notification command is empty")
	}

	args := append([]string(nil), c.Command[1:]...)
	if c.IconFlag != "" && d.Icon != "" {
		args = append(args, c.IconFlag, d.Icon)
	}
	args = append(args, d.Title, d.Body)

	out, err := exec.CommandContext(ctx, c.Command[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s: %w: %s", c.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Close is a no-op; desktop notifications expire on their own.
func (c CommandNotifier) Close(ctx context.Context, tag string) error {
	return nil
}

// CommandOpener opens windows by running Command with the absolute target
// URL appended. Relative targets are resolved against BaseURL.
type CommandOpener struct {
	Command []string
	BaseURL string
}

func (o CommandOpener) Open(ctx context.Context, target string) error {
	if len(o.Command) == 0 {
		return ErrNoOpener
	}

	abs, err := o.Resolve(target)
	if err != nil {
		return err
	}

	args := append(append([]string(nil), o.Command[1:]...), abs)
	if out, err := exec.CommandContext(ctx, o.Command[0], args...).CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %w: %s", o.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Resolve makes target absolute against BaseURL.
func (o CommandOpener) Resolve(target string) (string, error) {
	t, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing target %q: %w", target, err)
	}
	if t.IsAbs() || o.BaseURL == "" {
		return t.String(), nil
	}
	base, err := url.Parse(o.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", o.BaseURL, err)
	}
	return base.ResolveReference(t).String(), nil
}
