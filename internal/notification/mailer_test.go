package notification

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfirmation(t *testing.T) {
	b := sampleBooking()
	c := NewConfirmation(b)

	assert.Equal(t, "anna@example.com", c.To)
	assert.Equal(t, "Анна", c.CustomerName)
	assert.Equal(t, "2026-06-01", c.Date)
	assert.Equal(t, "12:00", c.Time)
	assert.Equal(t, 2, c.AdultTickets)
	assert.Equal(t, 1, c.ChildTickets)
	assert.Equal(t, "Подтверждение бронирования #"+b.ShortRef()+" - Ферма ЛуЛу", c.Subject())
}

func TestRenderConfirmation_EscapesHTML(t *testing.T) {
	c := NewConfirmation(sampleBooking())
	c.CustomerName = "<script>x</script>"

	html, text, err := RenderConfirmation(c)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "3800.00")
	assert.Contains(t, text, "взрослые 2, дети 1, малыши 0")
}

func TestConsoleMailer(t *testing.T) {
	var lines []string
	m := NewConsoleMailer(func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})

	require.NoError(t, m.SendBookingConfirmation(context.Background(), NewConfirmation(sampleBooking())))
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "to=anna@example.com")

	err := m.SendBookingConfirmation(context.Background(), Confirmation{})
	assert.Error(t, err)
}
