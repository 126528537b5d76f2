/*
Package cimrepo reads the WMI/CIM repository (the OBJECTS.DATA, INDEX.BTR
and MappingN.map files under wbem\Repository) directly, without the WMI
service, for forensic use.

We implement:

1. Namespaces, classes and instances, found by walking the index B-tree and
resolved through the page mapping into the object heap.

2. Class definitions with inherited properties, qualifiers and defaults, and
instance decoding against the resolved class layout.

3. Event subscription records (__EventFilter, consumers and
__FilterToConsumerBinding) decoded with fixed schemas, which is what most
investigations are after.

4. Dumps for people and an export of everything decoded into a Bolt database.

Nothing is ever written to the repository directory.

# Technical Details

**Pages.**
Both data files are sequences of 8 KiB pages. The mapping file translates
logical page numbers, which is what the index and the heap reference, into
physical page numbers. Three mapping files exist; the one with the valid
signature and the highest version wins.

**Index.**
INDEX.BTR holds a B-tree of strings. Every key is a path of segments like
NS_<digest>\CI_<digest>\IL_<digest>, and leaf keys end with
.<page>.<record id>.<size>, which is the location of the object record.
Digests are MD5 (legacy, Windows XP era) or SHA-256 (current) of the upper-case
UTF-16LE name, in upper-case hex.

**Heap.**
A heap page starts with a table of record headers (record id, offset, size,
checksum) terminated by a zero entry. A record larger than the room left on
its page continues on the following logical pages, so reading a record yields
a list of extents that is materialized once.

**Records.**
Class definitions are: superclass name, timestamp, then a class part with the
qualifier set, property descriptors and the default values, and finally the
methods. Instance records are: class digest, timestamps, then a property
data table whose slot sizes come from the class layout, followed by a heap of
strings and arrays that the slots point into.

**Locations.**
Everything decoded remembers where its bytes came from, as a list of
(physical page, offset, length) extents, so that a report can point at the
evidence.
*/
package cimrepo
