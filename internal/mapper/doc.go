// Package mapper turns result rows into projected values.
//
// A query's projection decides the shape of each result:
//
//	Single      the sole column value
//	Tuple       a *Tuple addressed by expression, alias or position
//	Constructor the value returned by a function called with the columns
//	Fields      a struct populated by column name
//	Entity      a *Record, with fetch-joined relations as nested records
//
// Rows arrive from a RowSource. The source yields one value per database
// column; projected constants are not part of the row and are filled in
// here. Results is single-pass and must be used by one goroutine.
package mapper
