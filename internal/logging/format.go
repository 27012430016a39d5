package logging

import "fmt"

// Debugf, Infof, Warnf, and Errorf format their arguments with fmt and
// emit the result. Unlike the plain-line methods in logging.go, these
// allocate (fmt.Sprintf always does) and so must not be used before
// the bootstrap heap is available — the boot sequencer switches to
// these once the heap has been carved out.
func (s Source) Debugf(format string, args ...any) { s.emit(LevelDebug, fmt.Sprintf(format, args...)) }
func (s Source) Infof(format string, args ...any)  { s.emit(LevelInfo, fmt.Sprintf(format, args...)) }
func (s Source) Warnf(format string, args ...any)  { s.emit(LevelWarn, fmt.Sprintf(format, args...)) }
func (s Source) Errorf(format string, args ...any) { s.emit(LevelError, fmt.Sprintf(format, args...)) }
