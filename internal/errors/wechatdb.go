package errors

import (
	"net/http"
)

var (
	ErrNoMessageDatabases = New(nil, http.StatusBadRequest, "no message databases supplied")
	ErrContactEmpty       = New(nil, http.StatusBadRequest, "contact is empty")
)

func InvalidArg(arg string) *Error {
	return Newf(nil, http.StatusBadRequest, "invalid argument: %s", arg)
}

func ContactNotFound(key string) *Error {
	return Newf(nil, http.StatusNotFound, "contact not found: %s", key)
}

// ContactTableNotFound 联系人数据库中没有任何像联系人表的表
func ContactTableNotFound(db string) *Error {
	return Newf(nil, http.StatusNotFound, "no contact table found in database %s", db)
}

func DatabaseNotFound(id string) *Error {
	return Newf(nil, http.StatusNotFound, "database not registered: %s", id)
}

func DBConnectFailed(id string, cause error) *Error {
	return Newf(cause, http.StatusInternalServerError, "connect database %s failed", id)
}

func DBNotConnected(id string) *Error {
	return Newf(nil, http.StatusInternalServerError, "database %s not connected", id)
}

func QueryFailed(query string, cause error) *Error {
	return Newf(cause, http.StatusInternalServerError, "query failed: %s", query)
}

func ScanRowFailed(cause error) *Error {
	return New(cause, http.StatusInternalServerError, "scan row failed")
}

func DataDirEmpty() *Error {
	return New(nil, http.StatusBadRequest, "data dir is empty")
}

func ServiceNotReady() *Error {
	return New(nil, http.StatusServiceUnavailable, "database service not ready")
}

func ReadOnlyQuery() *Error {
	return New(nil, http.StatusBadRequest, "only read-only statements are allowed")
}
