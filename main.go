// SPDX-License-Identifier: MIT
package main

import reposync "github.com/skaphos/reposync/cmd/reposync"

// execute is overridable in tests.
var execute = reposync.Execute

func main() {
	execute()
}
