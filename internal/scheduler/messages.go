package scheduler

import (
	"fmt"

	"github.com/hamed0406/hostwatch/internal/domain"
)

func unavailableBody(t domain.Target) string {
	return fmt.Sprintf("🔥🔥🔥 HOST: %s - %s UNAVAILABLE 🔥🔥🔥", t.Address, t.Description)
}

func recoveredBody(t domain.Target) string {
	return fmt.Sprintf("✅ HOST: %s - %s AVAILABLE AGAIN ✅", t.Address, t.Description)
}

func executionErrorBody(t domain.Target, detail string) string {
	return fmt.Sprintf("⚠️ HOST: %s - %s PROBE ERROR: %s", t.Address, t.Description, detail)
}
