// Package capture assembles a forensic record for one access.
//
// The Assembler runs the network probe, the device fingerprinter and the
// location triangulator concurrently. Each branch is bounded and converts
// its own failure into a default value, so one hung or failing source never
// cancels the others and Capture always returns a populated record. The
// record is scored, flagged and then handed to the store in the background;
// persistence failures are logged and never reach the caller.
package capture
