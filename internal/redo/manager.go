package redo

// LogWriter is the part of the active journal writer crash recovery needs:
// it is closed while the journal is scanned and reopened afterwards.
type LogWriter interface {
	Open() error
	Close() error
}

// LogManager is the view of the live journal that crash recovery uses.
type LogManager interface {
	// LogFile returns the path of the active journal.
	LogFile() string
	LogWriter() LogWriter
	// LogOnly appends op as is, without assigning a new transaction id.
	LogOnly(op Operation, sync bool) error
	// TrackOpen registers transactions found open in the journal, so they
	// stay open across a rollover until their end marker is logged.
	TrackOpen(ops []Operation)
}
