/*
Package pdf defines the basic objects stored in a PDF file and their
canonical token encoding.

A PDF file is essentially an append-only, random-access, persistent
object store. This package is the value codec for that store: it knows
how to turn Boolean, Integer, Real, String, Name, Array, Dictionary,
Stream and Null values (and references between them) into their byte
form and back. Managing object identity, storage location and revision
chaining is the job of the file package.
*/
package pdf
