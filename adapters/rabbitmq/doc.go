/*
Package rabbitmq provides a RabbitMQ transport for word-frequency exchanges.
Requests go through the default exchange to a queue named after the subject and
replies come back over the direct reply-to pseudo queue, matched by correlation id.
*/
package rabbitmq
