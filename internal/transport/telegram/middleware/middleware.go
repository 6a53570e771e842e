package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
	telemw "gopkg.in/telebot.v4/middleware"
)

func Logger() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			now := time.Now()

			rqID := uuid.NewString()
			c.Set("rqID", rqID)

			var chatID int64
			if c.Chat() != nil {
				chatID = c.Chat().ID
			}

			slog.Info(
				"start request",
				slog.String("rqID", rqID),
				slog.Int64("chatID", chatID),
				slog.String("text", c.Text()),
			)

			defer func() {
				slog.Info(
					"request finished",
					slog.String("rqID", rqID),
					slog.String("request duration", fmt.Sprintf("%.2fs", time.Since(now).Seconds())),
				)
			}()

			return next(c)
		}
	}
}

// AdminOnly lets through senders listed in adminIDs and answers everyone else.
// An empty list locks the route.
func AdminOnly(adminIDs []int64) tele.MiddlewareFunc {
	return telemw.Restrict(telemw.RestrictConfig{
		Chats: adminIDs,
		Out: func(c tele.Context) error {
			var senderID int64
			if c.Sender() != nil {
				senderID = c.Sender().ID
			}
			slog.Warn("admin command rejected", slog.Any("rqID", c.Get("rqID")), slog.Int64("senderID", senderID))
			return c.Send("No permission")
		},
	})
}
