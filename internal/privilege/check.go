// Package privilege reports whether the server runs with superuser rights.
package privilege

// RootUsername is the account whose processes are protected unless the
// caller is itself privileged.
const RootUsername = "root"
