// Package siteconfig is the typed key/value store of site-wide settings.
//
// Every setting is stored as a raw string with a declared type (text,
// number, boolean, date, date-time) and is coerced on read. The Resolver
// reads through three cache entries per key:
//
//	site_config_by_key_<key>        the stored Entry
//	site_config_by_id_<id>          the same Entry by ID
//	site_config_value_by_key_<key>  the coerced Value
//
// The set of known keys is declared in code (Declared). SyncAvailableConfig
// inserts any declared key missing from the store and is safe to run on
// every start.
//
// Settings with IsMultipleEntry hold comma-joined lists, e.g. the admin
// mailing list used by FindAdminMailingList.
package siteconfig
