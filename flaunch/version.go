package flaunch

// Version is overridden at build time via -ldflags.
var Version = "undefined"
