// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package plan defines the in-memory model of an action plan: an ordered list
// of steps, each naming a command template, an optional tool, and the
// placeholders it produces or consumes.
//
// Plans arrive from an external generator in one of several document formats
// (JSON, YAML, TOML, HCL). Every loader decodes into the same raw document
// shape, which is then normalized and validated here, so the rest of the
// engine only ever sees a Plan that passed ingestion checks. In particular,
// the action kind is a closed set: a step with an unknown kind is rejected
// rather than silently ignored.
package plan
