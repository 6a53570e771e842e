package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type senderContext struct {
	tele.Context
	sender *tele.User
	sent   []interface{}
}

func (c *senderContext) Sender() *tele.User { return c.sender }

func (c *senderContext) Get(string) interface{} { return "test" }

func (c *senderContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what)
	return nil
}

func TestAdminOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		adminIDs []int64
		senderID int64
		wantRun  bool
	}{
		{name: "admin", adminIDs: []int64{7, 42}, senderID: 42, wantRun: true},
		{name: "stranger", adminIDs: []int64{7, 42}, senderID: 1, wantRun: false},
		{name: "no admins configured", adminIDs: nil, senderID: 42, wantRun: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ran := false
			handler := AdminOnly(tt.adminIDs)(func(tele.Context) error {
				ran = true
				return nil
			})

			c := &senderContext{sender: &tele.User{ID: tt.senderID}}
			require.NoError(t, handler(c))

			assert.Equal(t, tt.wantRun, ran)
			if tt.wantRun {
				assert.Empty(t, c.sent)
			} else {
				assert.Equal(t, []interface{}{"No permission"}, c.sent)
			}
		})
	}
}
