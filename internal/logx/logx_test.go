package logx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithComponent_AddsAttribute(t *testing.T) {
	log := WithComponent("costcalc")
	assert.NotNil(t, log)
}

func TestBuild_TextAndJSON(t *testing.T) {
	assert.NotNil(t, build(Config{Level: "debug", Format: "text"}))
	assert.NotNil(t, build(Config{Level: "error", Format: "json"}))
}
