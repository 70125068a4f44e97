/*
 * Copyright 2026 Isolapurr Project.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package notify carries transient user-facing notifications. Delivery is
// an external concern; the daemon's default sink is the structured log.
package notify

import "github.com/isolapurr/hubmon/pkg/logger"

// Level is the severity of a toast.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is one transient notification.
type Toast struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier receives toasts. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Push(t Toast)
}

type logNotifier struct {
	logger logger.Logger
}

// NewLogNotifier returns a Notifier that writes toasts to the log.
func NewLogNotifier(log logger.Logger) Notifier {
	return &logNotifier{logger: log.WithComponent("notify")}
}

func (n *logNotifier) Push(t Toast) {
	switch t.Level {
	case LevelError:
		n.logger.Error().Str("toast", string(t.Level)).Msg(t.Message)
	case LevelWarning:
		n.logger.Warn().Str("toast", string(t.Level)).Msg(t.Message)
	default:
		n.logger.Info().Str("toast", string(t.Level)).Msg(t.Message)
	}
}
