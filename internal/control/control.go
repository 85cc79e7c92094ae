// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control is the operator channel of the sensing unit: a space
// character starts or stops an analysis session.
package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

// ToggleKey is the only command.
const ToggleKey = ' '

// StdinPort selects the process's standard input.
const StdinPort = "stdin"

// Open returns the control channel source: stdin or a serial port at baud.
func Open(port string, baud int, log *zap.SugaredLogger) (io.ReadCloser, error) {
	if port == "" || port == StdinPort {
		log.Info("control: reading from stdin")
		return io.NopCloser(os.Stdin), nil
	}

	serialOpts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	rwc, err := serial.Open(serialOpts)
	if err != nil {
		return nil, err
	}
	log.Infof("control: serial port opened on %s at %d baud", port, baud)
	return rwc, nil
}

// Toggles emits one value per ToggleKey read from r. Other bytes are
// ignored. The channel is closed when r ends or fails.
func Toggles(ctx context.Context, r io.Reader, log *zap.SugaredLogger) <-chan struct{} {
	out := make(chan struct{})

	go func() {
		defer close(out)
		br := bufio.NewReader(r)
		for {
			b, err := br.ReadByte()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Warnf("control: read error: %v", err)
				}
				return
			}
			if b != ToggleKey {
				continue
			}
			select {
			case out <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
