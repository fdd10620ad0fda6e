// Package signal extracts bounded intensity values from feed text.
//
// A Feed holds the most recent text received from a source (pushed over the
// HTTP API or read from an MQTT topic). An Extractor turns that text into a
// Reading: the positional integers 0-100 found in it, or, when phrase levels
// are enabled and the text has no numbers, a single level matched from a
// phrase table.
//
//	feed := signal.NewFeed()
//	ex := signal.NewExtractor(feed, signal.NewTokenizer(false, "v"), nil)
//	feed.Set("now 12 then 87 and 5")
//	r, _ := ex.Read() // r.Values == []int{12, 87, 5}
//
// Tokens outside 0-100 are discarded. Three-digit windows are taken left to
// right, so "1234" yields 123 (dropped) and 4.
package signal
