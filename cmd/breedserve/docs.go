package main

// General API documentation for swaggo. Build with -tags swagger to serve
// the UI at /swagger/.
//
// @title           breedserve API
// @version         1.0
// @description     Cattle and buffalo breed classification host.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
