//go:build tools
// +build tools

// Package main tracks go:generate tool dependencies (mockgen) in go.mod.
package main

import (
	_ "go.uber.org/mock/mockgen"
)
