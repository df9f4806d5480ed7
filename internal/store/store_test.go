package store

import (
	"os"
	"testing"

	"github.com/AlecFritsch/inito/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "error", Format: "text"})
	code := m.Run()
	logger.Sync()
	os.Exit(code)
}
