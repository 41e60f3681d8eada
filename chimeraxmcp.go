// Package chimeraxmcp provides remote control and documentation search for
// the ChimeraX molecular visualization application. It indexes the ChimeraX
// HTML reference documentation into bounded, semantically searchable chunks
// and exposes command execution over the ChimeraX REST interface.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, qdrant/, goquery/).
package chimeraxmcp
