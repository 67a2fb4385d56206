// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package agent describes an interface for modules to hook into the engine's
// loops.
//
// The main interface is Agent, which only requires a name. Everything else is
// opt-in: an agent implements the capability interfaces for the hooks it
// wants, e.g. JobTicker or EventHandler, and the Runtime only calls what is
// there. Agents can be enabled and disabled at runtime; the change is applied
// at the next iteration boundary, never mid-hook.
package agent
