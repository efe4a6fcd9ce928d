// Package procutil configures process-group cleanup for the local attach
// subprocess ConsoleHub spawns (docker attach / tmux attach-session),
// generalizing the teacher's per-platform worker cleanup to clauderond's
// Unix targets.
package procutil
