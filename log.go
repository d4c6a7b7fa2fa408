package adapt

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/fatih/color"
)

type ConsoleHandlerOpts struct {
	SlogOpts slog.HandlerOptions
}

// ConsoleHandler is a slog handler for interactive sessions: one line per
// record, colored level tag, attrs rendered inline as key=value pairs.
type ConsoleHandler struct {
	slog.Handler
	l *log.Logger
}

func NewConsoleHandler(out io.Writer, opts ConsoleHandlerOpts) *ConsoleHandler {
	return &ConsoleHandler{
		Handler: slog.NewJSONHandler(out, &opts.SlogOpts),
		l:       log.New(out, "", 0),
	}
}

func (ch *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(r.Time.Format("15:04:05.000"))
	line.WriteByte(' ')
	line.WriteString(levelTag(r.Level))
	line.WriteByte(' ')
	line.WriteString(color.HiWhiteString(r.Message))
	r.Attrs(func(a slog.Attr) bool {
		line.WriteByte(' ')
		line.WriteString(color.CyanString(a.Key))
		line.WriteByte('=')
		line.WriteString(fmt.Sprint(a.Value.Any()))
		return true
	})
	ch.l.Println(line.String())
	return nil
}

// levelTag pads levels to a fixed width so messages line up down the
// terminal.
func levelTag(l slog.Level) string {
	tag := fmt.Sprintf("%-5s", l.String())
	switch {
	case l >= slog.LevelError:
		return color.RedString(tag)
	case l >= slog.LevelWarn:
		return color.YellowString(tag)
	case l >= slog.LevelInfo:
		return color.GreenString(tag)
	default:
		return color.WhiteString(tag)
	}
}
