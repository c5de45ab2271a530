package common

// AuthorizationHeader carries bearer credentials on every authenticated
// request of the upload protocol.
const AuthorizationHeader = "Authorization"

// BearerPrefix is prepended to tokens in AuthorizationHeader.
const BearerPrefix = "Bearer "

// OctetStream is the content type of chunk bodies.
const OctetStream = "application/octet-stream"
