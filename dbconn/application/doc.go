// Package application orquestra as três estratégias de uso de conexão.
//
// Todo caminho (sucesso, erro, panic) fecha a conexão avulsa ou devolve o
// lease; handlers nunca chamam Close/Release diretamente.
package application
