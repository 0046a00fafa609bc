package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	cfg := &Config{port: 3000}
	require.NoError(t, cfg.validate())

	cfg = &Config{port: 0}
	assert.Error(t, cfg.validate())

	cfg = &Config{port: 70000}
	assert.Error(t, cfg.validate())

	cfg = &Config{port: 3000, tlsCert: "cert.pem"}
	assert.Error(t, cfg.validate())

	cfg = &Config{port: 3000, tlsCert: "cert.pem", tlsKey: "key.pem"}
	require.NoError(t, cfg.validate())
	assert.Equal(t, "https", cfg.scheme())
}

func TestConfigResolvedBaseURL(t *testing.T) {
	cfg := &Config{port: 3000}
	assert.Equal(t, "http://localhost:3000", cfg.resolvedBaseURL())

	cfg = &Config{port: 3000, baseURL: "https://quiz.example.com/"}
	assert.Equal(t, "https://quiz.example.com", cfg.resolvedBaseURL())

	// TLS serving implies an https default.
	cfg = &Config{port: 8443, tlsCert: "cert.pem", tlsKey: "key.pem"}
	assert.Equal(t, "https://localhost:8443", cfg.resolvedBaseURL())
}
