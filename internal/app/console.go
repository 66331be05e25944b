package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/saathi/internal/controller"
	"github.com/MrWong99/saathi/internal/device"
	"github.com/MrWong99/saathi/pkg/provider/stt"
	"github.com/MrWong99/saathi/pkg/provider/tts"
	"github.com/MrWong99/saathi/pkg/types"
)

// Chat runs one conversation over the console devices until the transcript
// source runs dry or ctx is cancelled. Every time the conversation settles
// in Idle a new turn is started, so the terminal behaves like a microphone
// button pressed after each reply. Recoverable errors are printed to out.
//
// Chat returns nil when the input ends and the error that stopped the
// conversation otherwise.
func (a *App) Chat(ctx context.Context, src stt.Source, synth tts.Synthesizer, out io.Writer) error {
	settled := make(chan struct{}, 1)
	s, err := a.sessions.Open(ctx, src, synth, OpenOptions{
		InputDevice:  device.ConsoleMic,
		OutputDevice: device.ConsoleSpeaker,
		Notify: func(_ *Session, ev controller.Event) {
			switch ev.Type {
			case controller.EventError:
				if !errors.Is(ev.Err, io.EOF) {
					fmt.Fprintf(out, "! %s: %v\n", types.KindOf(ev.Err), ev.Err)
				}
			case controller.EventStateChanged:
				if ev.State != controller.Idle && ev.State != controller.Errored {
					return
				}
				select {
				case settled <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.sessions.Close(s.ID) }()

	if err := s.Start(ctx); err != nil {
		slog.Debug("chat start failed", "err", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Controller.Done():
			return nil
		case <-settled:
		}

		switch s.Controller.State() {
		case controller.Idle:
			if err := s.Start(ctx); err != nil && !errors.Is(err, controller.ErrBusy) {
				slog.Debug("chat restart failed", "err", err)
			}
		case controller.Errored:
			err := s.Controller.LastError()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("app: chat: %w", err)
		}
	}
}
