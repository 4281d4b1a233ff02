// Package types provides shared data structures for the process manager.
//
// Core Types:
//   - Process: record of one running application process, with its
//     hosted abilities grouped by module
//   - ProcessInfo: JSON-friendly snapshot of a Process
//   - Bundle, Module: installed application manifests
//   - Stats: process manager statistics
//
// State Management:
//   - AppState: process lifecycle (create, ready, foreground, background,
//     cached, terminated)
//   - AbilityState: ability visibility (foreground, background)
//   - SupportState: declared process cache support
//
// Example Usage:
//
//	p := types.NewProcess("com.example.notes", "com.example.notes", pid, time.Now())
//	p.AddAbility(&types.Ability{Token: id.NewAbilityToken(), Module: "entry", Name: "Main"})
//	p.SetState(types.StateForeground, time.Now())
package types
