// Package inspect recovers the source order of keyword arguments at a call
// site from the calling frame's compiled code.
//
// Given a Frame (code buffer, constant pool and the offset of the executing
// call), KeywordNames decodes the buffer, walks back from the call to the
// nearest opaque instruction, replays the straight-line run on an abstract
// stack and reads the keyword names from the key slots. Only names written
// as literal name=value tokens are recoverable; computed names and **mapping
// unpacking are reported as UnsupportedCallPatternError, never guessed.
package inspect
