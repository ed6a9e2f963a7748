// Package autoload initializes the global zerolog logger from the LOG_*
// environment on import. Blank-import it from main:
//
//	import _ "github.com/aisaturn/saturn-engine/pkg/logger/autoload"
package autoload

import (
	configx "github.com/aisaturn/saturn-engine/pkg/config"
	logx "github.com/aisaturn/saturn-engine/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
