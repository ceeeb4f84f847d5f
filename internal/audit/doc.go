// Package audit keeps the history of fetch cycles in the fetch_cycles table.
//
// Every cycle is recorded, including cycles where all meters were absent or
// the readings could not be stored, so gaps in the readings table can be
// traced back to the cycle that produced them.
package audit
