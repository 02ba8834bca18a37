package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvLiteralDollar(t *testing.T) {
	assert.Equal(t, "$5", expandEnv("$$5"))
}

func TestExpandEnvBraced(t *testing.T) {
	t.Setenv("KUBESEE_TEST_VAR", "hello")
	assert.Equal(t, "value: hello!", expandEnv("value: ${KUBESEE_TEST_VAR}!"))
}

func TestExpandEnvBareName(t *testing.T) {
	t.Setenv("KUBESEE_TEST_VAR", "world")
	assert.Equal(t, "value: world-suffix", expandEnv("value: $KUBESEE_TEST_VAR-suffix"))
}

func TestExpandEnvUnsetIsEmptyString(t *testing.T) {
	assert.Equal(t, "value: ", expandEnv("value: ${KUBESEE_DEFINITELY_NOT_SET}"))
}

func TestExpandEnvUnterminatedBraceIsLiteral(t *testing.T) {
	assert.Equal(t, "value: ${oops", expandEnv("value: ${oops"))
}

func TestExpandEnvTrailingDollarIsLiteral(t *testing.T) {
	assert.Equal(t, "price: $", expandEnv("price: $"))
}

func TestExpandEnvDollarBeforeNonNameIsLiteral(t *testing.T) {
	assert.Equal(t, "cost: $5", expandEnv("cost: $5"))
}
