/*
Package file manages the objects stored in a PDF file.

This package only concerns itself with file-level concerns.
These include:
	* locating and decoding indirect objects
	* the cross-reference index mapping object numbers to storage
	* revisions and append-only incremental updates

A PDF file is a serialized set of indirect objects
which can be randomly accessed. The format allows for
append-only extensions to the set of objects; each such
extension is a revision.

Methods for random access:
	1. Cross-Reference Table (7.5.4) and File Trailer (7.5.5)
	2. Cross-Reference Streams (7.5.8) (since PDF-1.5)
The method used can be determined by following the
startxref reference. If the referenced position is an
indirect object, then method 2 is used, otherwise method 1.
Both methods can address objects stored inside object
streams (7.5.7) through compressed index entries.
*/
package file
