/*
Package storage persists admin-authored tracker configuration in BoltDB.

Only two documents live here: the dynamic resource table and the
admission lists, so runtime admin updates survive a tracker restart.
Node records are deliberately excluded — the registry is in-memory by
contract and membership is rebuilt from agent re-registration.
*/
package storage
