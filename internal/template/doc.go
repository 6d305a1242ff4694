// Package template expands prompt and composition templates against working
// memory.
//
// Three markers reference variables:
//
//	$name    inline: a short plain-text rendering embedded in the sentence
//	@name    block: a titled, delimited block for multi-line content
//	@?name   optional block: rendered only when name is bound
//
// A reference may follow attributes with dots ($invoice.total). A dot that
// is not followed by an identifier is punctuation. "$$" and "@@" produce a
// literal marker character, and a marker directly preceded by a letter or
// digit (an e-mail address, for instance) is plain text.
package template
