// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// libcaptoken is the C-callable token verification library loaded by
// host processes such as database extensions. Build with:
//
//	go build -buildmode=c-shared -o libcaptoken.so ./cmd/libcaptoken
//
// The generated header declares:
//
//	int      captoken_public_key_from_file(char* path, uint64_t* out_key);
//	void     captoken_public_key_free(uint64_t key);
//	int      captoken_token_verify(char* token, uint64_t key, char* subject, char* resource);
//	int      captoken_token_verify_service_chain(char* token, uint64_t key,
//	             char* subject, char* resource, char* service_nodes, char* component);
//	char*    captoken_error_message(int code);
//	void     captoken_string_free(char* message);
//
// Every int return is a result code (0 is success; see lib/verify).
// Key handles are opaque; zero is never valid. Strings returned by
// captoken_error_message belong to the caller and must be released
// with captoken_string_free. Input strings are copied before the call
// returns and never retained.
//
// Diagnostics go to stderr as JSON at warn level, or the level named
// by CAPTOKEN_LOG_LEVEL (debug, info, warn, error). When CAPTOKEN_CONFIG
// names a config file, its leeway and log level apply.
package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"log/slog"
	"os"
	"strings"
	"time"
	"unsafe"

	"github.com/bureau-foundation/captoken/lib/boundary"
	"github.com/bureau-foundation/captoken/lib/config"
	"github.com/bureau-foundation/captoken/lib/verify"
)

var engine = newEngine()

// newEngine builds the process-wide engine. With CAPTOKEN_CONFIG set,
// verification.leeway and log.level come from that file; an unusable
// file is reported and ignored. CAPTOKEN_LOG_LEVEL wins over log.level.
func newEngine() *boundary.Engine {
	level := slog.LevelWarn
	var leeway time.Duration
	var configErr error

	if os.Getenv(config.EnvironmentVariable) != "" {
		cfg, err := loadConfig()
		if err != nil {
			configErr = err
		} else {
			leeway, _ = cfg.Leeway()
			level, _ = cfg.LogLevel()
		}
	}
	if value := os.Getenv("CAPTOKEN_LOG_LEVEL"); value != "" {
		var override slog.Level
		if err := override.UnmarshalText([]byte(strings.TrimSpace(value))); err == nil {
			level = override
		}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if configErr != nil {
		logger.Warn("ignoring captoken config", "error", configErr)
	}
	return boundary.NewEngine(verify.New(verify.Config{Logger: logger, Leeway: leeway}), logger)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// goString converts a possibly-NULL C string.
func goString(value *C.char) string {
	if value == nil {
		return ""
	}
	return C.GoString(value)
}

//export captoken_public_key_from_file
func captoken_public_key_from_file(path *C.char, outKey *C.uint64_t) C.int {
	if outKey == nil {
		return C.int(verify.InternalError)
	}
	*outKey = 0
	if path == nil {
		return C.int(verify.KeyLoadError)
	}
	handle, result := engine.KeyFromFile(C.GoString(path))
	*outKey = C.uint64_t(handle)
	return C.int(result.Code)
}

//export captoken_public_key_free
func captoken_public_key_free(key C.uint64_t) {
	engine.KeyFree(boundary.Handle(key))
}

//export captoken_token_verify
func captoken_token_verify(token *C.char, key C.uint64_t, subject, resource *C.char) C.int {
	if token == nil {
		return C.int(verify.MalformedToken)
	}
	result := engine.TokenVerify(C.GoString(token), boundary.Handle(key), goString(subject), goString(resource))
	return C.int(result.Code)
}

//export captoken_token_verify_service_chain
func captoken_token_verify_service_chain(token *C.char, key C.uint64_t, subject, resource, serviceNodes, component *C.char) C.int {
	if token == nil || serviceNodes == nil {
		return C.int(verify.MalformedToken)
	}
	result := engine.TokenVerifyServiceChain(C.GoString(token), boundary.Handle(key),
		goString(subject), goString(resource), C.GoString(serviceNodes), goString(component))
	return C.int(result.Code)
}

//export captoken_error_message
func captoken_error_message(code C.int) *C.char {
	return C.CString(boundary.ErrorMessage(int(code)))
}

//export captoken_string_free
func captoken_string_free(message *C.char) {
	if message != nil {
		C.free(unsafe.Pointer(message))
	}
}

func main() {}
