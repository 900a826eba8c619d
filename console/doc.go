// Package console implements the operator command console carried over the
// USB serial link.
//
// Inbound bytes are accumulated into a bounded [LineBuffer] until a CR or LF
// arrives; the trimmed line is then matched exactly against a fixed
// vocabulary:
//
//	help             list recognized commands
//	dumpstrings      print the contents of the log
//	resetstrings     truncate the log
//	teststring       append a diagnostic string to the log
//	resetfilesystem  format and remount the filesystem
//
// Anything else, including an empty line, is answered with an
// unknown-command diagnostic. A line longer than the buffer capacity is
// reported once and discarded up to its terminator; the next line starts
// clean.
//
// Responses are plain ASCII terminated with CR LF.
package console
