// Package ui implements the feedline terminal viewer on Bubble Tea.
//
// The model subscribes to a timeline controller and keeps its own copy of
// the list in step by applying each published diff, so the selection can
// follow an item when rows are inserted or removed above it. A diff that does
// not fit the local list is logged and the list is replaced wholesale.
//
// Notices from the controller are shown as a toast that clears after a few
// seconds. Reaching the last row asks for the next page unless pagination is
// exhausted, already loading or failed; a failed load-more is retried with m.
//
// Theme and timestamp toggles are written back to the prefs file.
package ui
