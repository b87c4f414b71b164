package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutorInterface(t *testing.T) {
	t.Run("Connection implements Executor interface", func(t *testing.T) {
		var executor Executor = (*Connection)(nil)
		assert.Nil(t, executor.(*Connection))
	})
}
