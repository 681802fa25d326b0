// Package adapters narrows pgxpool, database/sql and sqlx handles to the two
// calls the sequencer needs. Statements arrive fully interpolated.
package adapters
