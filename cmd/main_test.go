package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	env, stages := parseArgs([]string{"--env", "prod.conf", "merge", "export"})
	assert.Equal(t, "prod.conf", env)
	assert.Equal(t, []string{"merge", "export"}, stages)

	env, stages = parseArgs([]string{"local.env"})
	assert.Equal(t, "local.env", env)
	assert.Empty(t, stages)
}
