package progress

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestLog_StartAdvanceFinish(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewLog(logrus.NewEntry(logger))
	p.Every = 0

	p.Start(3)
	p.Advance()
	p.Advance()
	p.Finish()

	assert.Equal(t, 2, p.Done())
	entries := hook.AllEntries()
	assert.Len(t, entries, 4)
	assert.Equal(t, "progress: 0/3", entries[0].Message)
	assert.Contains(t, entries[3].Message, "done 2/3")
}

func TestLog_ThrottlesAdvance(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewLog(logrus.NewEntry(logger))

	p.Start(100)
	for i := 0; i < 10; i++ {
		p.Advance()
	}
	// Start only; the advances fall inside the one second window.
	assert.Len(t, hook.AllEntries(), 1)
}

func TestAdvanceOnly(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewLog(logrus.NewEntry(logger))
	p.Every = 0
	p.Start(2)

	shared := AdvanceOnly(p)
	shared.Start(50)
	shared.Advance()
	shared.Finish()

	assert.Equal(t, 1, p.Done())
	assert.Len(t, hook.AllEntries(), 2)
}
