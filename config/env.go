package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Recognized environment variables.
const (
	EnvNoBlock             = "TRIADS_NO_BLOCK"
	EnvNoExperience        = "TRIADS_NO_EXPERIENCE"
	EnvConfidence          = "CLAUDE_ROUTER_CONFIDENCE"
	EnvGraceTurns          = "CLAUDE_ROUTER_GRACE_TURNS"
	EnvGraceMinutes        = "CLAUDE_ROUTER_GRACE_MINUTES"
	EnvLLMTimeout          = "CLAUDE_ROUTER_LLM_TIMEOUT"
	EnvSimilarityThreshold = "CLAUDE_ROUTER_SIMILARITY_THRESHOLD"
	EnvTraining            = "CLAUDE_ROUTER_TRAINING"
	EnvTelemetry           = "CLAUDE_ROUTER_TELEMETRY"
	EnvModelPath           = "CLAUDE_ROUTER_MODEL_PATH"
)

// ApplyEnv overrides configuration from the recognized environment
// variables. Out-of-range numeric values are rejected, not clamped.
func (c *Config) ApplyEnv() error {
	if boolEnv(EnvNoBlock) {
		c.Hook.NoBlock = true
	}
	if boolEnv(EnvNoExperience) {
		c.Hook.Disabled = true
	}

	if v := os.Getenv(EnvConfidence); v != "" {
		f, err := parseFloatInRange(EnvConfidence, v, 0, 1)
		if err != nil {
			return err
		}
		c.Router.ConfidenceThreshold = f
	}
	if v := os.Getenv(EnvSimilarityThreshold); v != "" {
		f, err := parseFloatInRange(EnvSimilarityThreshold, v, 0, 1)
		if err != nil {
			return err
		}
		c.Router.AmbiguityThreshold = f
	}
	if v := os.Getenv(EnvGraceTurns); v != "" {
		n, err := parseIntInRange(EnvGraceTurns, v, 1, 50)
		if err != nil {
			return err
		}
		c.Router.GraceTurns = n
	}
	if v := os.Getenv(EnvGraceMinutes); v != "" {
		n, err := parseIntInRange(EnvGraceMinutes, v, 1, 120)
		if err != nil {
			return err
		}
		c.Router.GraceMinutes = n
	}
	if v := os.Getenv(EnvLLMTimeout); v != "" {
		// Milliseconds, validated to 100-10000.
		n, err := parseIntInRange(EnvLLMTimeout, v, 100, 10000)
		if err != nil {
			return err
		}
		c.Router.LLMTimeout = time.Duration(n) * time.Millisecond
	}
	if boolEnv(EnvTraining) {
		c.Router.Training = true
	}
	if v := os.Getenv(EnvTelemetry); v != "" {
		c.Router.Telemetry = v == "1" || v == "true"
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.Router.ModelPath = v
	}

	return nil
}

func boolEnv(name string) bool {
	v := os.Getenv(name)
	return v == "1" || v == "true"
}

func parseFloatInRange(name, value string, min, max float64) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: not a number: %q", name, value)
	}
	if f < min || f > max {
		return 0, fmt.Errorf("%s: %v out of range [%v, %v]", name, f, min, max)
	}
	return f, nil
}

func parseIntInRange(name, value string, min, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: not an integer: %q", name, value)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s: %d out of range [%d, %d]", name, n, min, max)
	}
	return n, nil
}
